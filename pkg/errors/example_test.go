package errors_test

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/edsync/pkg/errors"
)

// Example demonstrates basic error creation and detail attachment.
func Example() {
	err := errors.New(errors.ErrorTypeConnection, "failed to reach source API").
		WithDetail("base_url", "https://api.example.org").
		WithDetail("attempt", 3)

	fmt.Println(err.Error())

	// Output:
	// connection: failed to reach source API
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeData, "failed to decode page").
		WithDetail("endpoint", "/ed-fi/students").
		WithDetail("offset", 500)

	if errors.IsType(err, errors.ErrorTypeData) {
		fmt.Println("This is a data error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Cause was unexpected EOF")
	}

	// Output:
	// This is a data error
	// Cause was unexpected EOF
}

// ExampleFromStatus demonstrates HTTP status classification.
func ExampleFromStatus() {
	for _, status := range []int{401, 404, 429, 503, 400} {
		err := errors.FromStatus(status, "request failed")
		fmt.Printf("%d %s retryable=%v\n", status, err.Type, errors.IsRetryable(err))
	}

	// Output:
	// 401 authentication retryable=false
	// 404 not_found retryable=false
	// 429 rate_limit retryable=true
	// 503 connection retryable=true
	// 400 query retryable=false
}

// ExampleStatusCode shows that the status survives wrapping.
func ExampleStatusCode() {
	err := errors.Wrap(errors.FromStatus(404, "missing"), errors.ErrorTypeData, "delete failed")
	fmt.Println(errors.StatusCode(err))
	fmt.Println(errors.StatusCode(io.EOF))

	// Output:
	// 404
	// 0
}

// ExampleIsCancellation demonstrates context cancellation detection.
func ExampleIsCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "fetch aborted")
	fmt.Println(errors.IsCancellation(err))
	fmt.Println(errors.IsCancellation(io.EOF))

	// Output:
	// true
	// false
}

// Example_errorChain shows how to chain multiple error contexts.
func Example_errorChain() {
	err := fetchVersion()
	err = errors.Wrap(err, errors.ErrorTypeInternal, "run aborted").
		WithDetail("source_key", "2024")

	fmt.Println("Full error chain:", err)

	// Output:
	// Full error chain: internal: run aborted: connection: current version unavailable
}

func fetchVersion() error {
	return errors.New(errors.ErrorTypeConnection, "current version unavailable").
		WithDetail("status", 502)
}

// ExampleIsType demonstrates checking error types.
func ExampleIsType() {
	connErr := errors.New(errors.ErrorTypeConnection, "connection failed")
	wrappedErr := errors.Wrap(connErr, errors.ErrorTypeData, "processing failed")

	fmt.Printf("Is connection error: %v\n", errors.IsType(connErr, errors.ErrorTypeConnection))
	fmt.Printf("Wrapped error is data type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeData))
	fmt.Printf("Wrapped error contains connection type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeConnection))

	// Output:
	// Is connection error: true
	// Wrapped error is data type: true
	// Wrapped error contains connection type: false
}
