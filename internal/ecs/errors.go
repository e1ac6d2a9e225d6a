package ecs

import "fmt"

// RequestExhaustedError is returned by Client.Send when every attempt failed.
type RequestExhaustedError struct {
	Method   string
	URL      string
	Attempts int
	// LastStatus is the status code of the last response, 0 if the last
	// attempt failed before a response arrived.
	LastStatus int
	// Err is the last transport error, nil if the last attempt got a response.
	Err error
}

func (e *RequestExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ecs: %s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("ecs: %s %s failed after %d attempts: last status %d", e.Method, e.URL, e.Attempts, e.LastStatus)
}

func (e *RequestExhaustedError) Unwrap() error { return e.Err }

// AuthenticationError means login did not produce a token: either the
// response lacked the token header or every attempt failed, in which case
// Err holds the *RequestExhaustedError.
type AuthenticationError struct {
	User   string
	Status int
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ecs: login as %q failed: %v", e.User, e.Err)
	}
	return fmt.Sprintf("ecs: login as %q returned status %d without a %s header", e.User, e.Status, HeaderAuthToken)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
