package pylock

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"testing"
)

func ExampleError() {
	fmt.Println(&Error{
		Inner:   nil,
		Kind:    ErrResolution,
		Message: "test",
		Op:      "ExampleError",
	})

	fmt.Println(&Error{
		Inner:   sql.ErrNoRows,
		Kind:    ErrCache,
		Message: "needed object missing",
		Op:      "Lookup",
	})
	err := &Error{
		Inner: &Error{
			Inner:   sql.ErrNoRows,
			Kind:    ErrCache,
			Message: "needed object missing",
			Op:      "Lookup",
		},
		Kind: ErrNetworkTransient,
	}
	fmt.Println(err)
	fmt.Println(fmt.Errorf("somepackage: oops: %w", &Error{
		Inner:   sql.ErrNoRows,
		Kind:    ErrCache,
		Message: "needed object missing",
		Op:      "Lookup",
	}))

	// Output:
	// ExampleError [resolution]: test
	// Lookup [cache]: needed object missing: sql: no rows in result set
	// Lookup [cache]: needed object missing: sql: no rows in result set
	// somepackage: oops: Lookup [cache]: needed object missing: sql: no rows in result set
}

type retryTestcase struct {
	Err       error
	Retryable bool
}

func (tc retryTestcase) Run(t *testing.T) {
	t.Log(tc.Err)
	if got, want := errors.Is(tc.Err, ErrRetryable), tc.Retryable; got != want {
		t.Errorf("%v: got: %v, want: %v", ErrRetryable, got, want)
	}
}

func TestRetryable(t *testing.T) {
	tt := []retryTestcase{
		// 0: transient network error is retryable
		{
			Err: &Error{
				Inner: errors.New("connection reset"),
				Kind:  ErrNetworkTransient,
			},
			Retryable: true,
		},
		// 1: permanent network error is not retryable
		{
			Err: &Error{
				Inner: errors.New("404"),
				Kind:  ErrNetworkPermanent,
			},
			Retryable: false,
		},
		// 2: corrupt cache entry is retryable once
		{
			Err: &Error{
				Inner: errors.New("bad fingerprint version"),
				Kind:  ErrCache,
			},
			Retryable: true,
		},
		// 3: build failures are never retried
		{
			Err: &Error{
				Inner: errors.New("backend exited 1"),
				Kind:  ErrBuild,
			},
			Retryable: false,
		},
	}

	for i, tc := range tt {
		t.Run(strconv.Itoa(i), tc.Run)
	}
}
