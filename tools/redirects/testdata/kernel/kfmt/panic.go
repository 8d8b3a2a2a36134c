package kfmt

// Panic halts the core.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {}

func notRedirected() {}
