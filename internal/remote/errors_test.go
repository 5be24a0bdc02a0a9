package remote

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestClassifyGoogleAPI(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, KindAuth},
		{"not found", &googleapi.Error{Code: 404}, KindNotFound},
		{"too many requests", &googleapi.Error{Code: 429}, KindRateLimited},
		{
			"quota via 403",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}},
			KindRateLimited,
		},
		{"plain 403", &googleapi.Error{Code: 403}, KindUnknown},
		{"server fault", &googleapi.Error{Code: 503}, KindNetwork},
		{"wrapped api error", fmt.Errorf("outer: %w", &googleapi.Error{Code: 401}), KindAuth},
		{"plain error", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyGoogleAPI("testing", tt.err)
			if KindOf(got) != tt.want {
				t.Errorf("KindOf = %v, want %v", KindOf(got), tt.want)
			}
		})
	}

	if ClassifyGoogleAPI("testing", nil) != nil {
		t.Error("classifying nil returned non-nil")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewError(KindNetwork, "op", errors.New("x"))) {
		t.Error("network errors should be retryable")
	}
	if !IsRetryable(NewError(KindRateLimited, "op", errors.New("x"))) {
		t.Error("rate limit errors should be retryable")
	}
	if IsRetryable(NewError(KindAuth, "op", errors.New("x"))) {
		t.Error("auth errors should not be retryable")
	}
	if IsRetryable(NewError(KindHistoryExpired, "op", errors.New("x"))) {
		t.Error("history expiry should not be retryable")
	}
	if !IsRetryable(errors.New("unclassified")) {
		t.Error("unclassified errors should default to retryable")
	}
}

func TestHistoryExpiredDetection(t *testing.T) {
	err := NewError(KindHistoryExpired, "listing history", errors.New("404"))
	if !IsHistoryExpired(err) {
		t.Error("IsHistoryExpired = false for history error")
	}
	if IsHistoryExpired(errors.New("other")) {
		t.Error("IsHistoryExpired = true for plain error")
	}

	wrapped := fmt.Errorf("incremental sync: %w", err)
	if !IsHistoryExpired(wrapped) {
		t.Error("IsHistoryExpired should see through wrapping")
	}
}
