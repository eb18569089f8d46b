package gazelle

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

func transientErr() error {
	return &url.Error{Op: "Get", URL: "https://example.com", Err: errors.New("connection refused")}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, 0, func() error {
		calls++
		if calls < 3 {
			return transientErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetry_ExhaustionWrapsErrTransient(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, 0, func() error {
		calls++
		return transientErr()
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want exactly 3", calls)
	}
}

func TestRetry_ServiceErrorNotRetried(t *testing.T) {
	calls := 0
	svcErr := &ServiceError{Action: "collage", Status: 400, Detail: "bad id"}
	err := retry(context.Background(), 3, 0, func() error {
		calls++
		return svcErr
	})
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	var got *ServiceError
	if !errors.As(err, &got) {
		t.Fatalf("err = %v, want the ServiceError unwrapped", err)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, 3, 0, func() error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if calls != 0 {
		t.Errorf("fn called %d times after cancellation, want 0", calls)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"service error", &ServiceError{Action: "x"}, false},
		{"url error", transientErr(), true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Errorf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
