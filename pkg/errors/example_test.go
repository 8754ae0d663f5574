// Package errors provides examples of structured error handling in sqlrt.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	// Create a new error with type
	err := errors.New(errors.ErrorTypeConnection, "failed to open connection").
		WithDetail("locator", "postgres://localhost/app")

	// Print the error
	fmt.Println(err.Error())

	// Output:
	// connection: failed to open connection
}

// ExampleWrap shows how to wrap existing errors with the statement attached.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeExecution, "statement failed").
		WithStatement("select * from t where id = ?")

	if errors.IsType(err, errors.ErrorTypeExecution) {
		fmt.Println("This is an execution error")
	}

	if stmt, ok := errors.Statement(err); ok {
		fmt.Println(stmt)
	}

	// Output:
	// This is an execution error
	// select * from t where id = ?
}

// ExampleIsRetryable shows that only connection failures are retryable.
func ExampleIsRetryable() {
	openErr := errors.New(errors.ErrorTypeConnection, "dial tcp: connection refused")
	bindErr := errors.New(errors.ErrorTypeBind, "unresolved token ?userId")

	fmt.Println(errors.IsRetryable(openErr))
	fmt.Println(errors.IsRetryable(bindErr))

	// Output:
	// true
	// false
}

// ExampleIsType demonstrates checking error types through a wrap chain.
func ExampleIsType() {
	stateErr := errors.New(errors.ErrorTypeTransactionState, "transaction already active")
	wrapped := errors.Wrap(stateErr, errors.ErrorTypeInternal, "begin failed")

	fmt.Printf("Is transaction state error: %v\n", errors.IsType(stateErr, errors.ErrorTypeTransactionState))
	fmt.Printf("Wrapped error is internal: %v\n", errors.IsType(wrapped, errors.ErrorTypeInternal))
	fmt.Printf("Full error: %v\n", wrapped)

	// Output:
	// Is transaction state error: true
	// Wrapped error is internal: true
	// Full error: internal: begin failed: transaction_state: transaction already active
}
