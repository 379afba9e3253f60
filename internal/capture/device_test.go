package capture

import (
	"testing"
)

type fakeDevice struct {
	supported map[string]bool
}

func (f *fakeDevice) Start(opts StartOptions, emit func(Chunk)) error { return nil }
func (f *fakeDevice) Stop() error                                     { return nil }
func (f *fakeDevice) Close() error                                    { return nil }
func (f *fakeDevice) Supports(mimeType string) bool                   { return f.supported[mimeType] }

func TestSelectMimeType(t *testing.T) {
	tests := []struct {
		name      string
		supported map[string]bool
		prefs     []string
		expected  string
	}{
		{
			name:      "first preference wins",
			supported: map[string]bool{"audio/webm;codecs=opus": true, "audio/webm": true},
			prefs:     []string{"audio/webm;codecs=opus", "audio/webm"},
			expected:  "audio/webm;codecs=opus",
		},
		{
			name:      "falls through to later preference",
			supported: map[string]bool{"audio/ogg;codecs=opus": true},
			prefs:     []string{"audio/webm;codecs=opus", "audio/webm", "audio/ogg;codecs=opus"},
			expected:  "audio/ogg;codecs=opus",
		},
		{
			name:      "no match yields platform default",
			supported: map[string]bool{},
			prefs:     []string{"audio/webm;codecs=opus", "audio/webm"},
			expected:  "",
		},
		{
			name:      "empty preference list yields platform default",
			supported: map[string]bool{"audio/webm": true},
			prefs:     nil,
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDevice{supported: tt.supported}
			if got := SelectMimeType(d, tt.prefs); got != tt.expected {
				t.Errorf("SelectMimeType() = %q, want %q", got, tt.expected)
			}
		})
	}
}
