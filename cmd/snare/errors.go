package main

import "errors"

var (
	ErrStartProxy  = errors.New("snare: start proxy server")
	ErrLoadRules   = errors.New("snare: load rules")
	ErrImportRules = errors.New("snare: import rules")
)
