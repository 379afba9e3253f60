package main

import "github.com/interviewly/voicekit/internal/bootstrap"

func main() {
	bootstrap.RunServer()
}
