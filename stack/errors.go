package stack

import (
	"context"
	"errors"
	"strings"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v5"
)

// errorCode returns the AWS error code carried by err, or "".
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotVisibleYet matches the errors EC2 returns for an id it has just handed
// out but not yet propagated.
func isNotVisibleYet(err error) bool {
	switch errorCode(err) {
	case "InvalidVpcID.NotFound",
		"InvalidInternetGatewayID.NotFound",
		"InvalidVpcEndpointId.NotFound",
		"InvalidRouteTableID.NotFound":
		return true
	}
	return false
}

// isDependencyPending matches delete failures that clear once a dependent
// resource finishes going away.
func isDependencyPending(err error) bool {
	switch errorCode(err) {
	case "DependencyViolation", "IncorrectState", "InvalidState":
		return true
	}
	return false
}

// isGone reports whether a delete failed only because the target no longer exists.
func isGone(err error) bool {
	if err == nil {
		return false
	}

	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var rnf *smtypes.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}

	code := errorCode(err)
	switch {
	case code == "NoSuchBucket", code == "NotFound", code == "ResourceNotFound", code == "ResourceNotFoundException":
		return true
	case strings.HasSuffix(code, ".NotFound"):
		return true
	case code == "Gateway.NotAttached":
		return true
	}
	return false
}

// isAlreadyOwned reports whether bucket creation failed because we already own it.
func isAlreadyOwned(err error) bool {
	var baoby *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}
	return errorCode(err) == "BucketAlreadyOwnedByYou"
}

// retry runs op until it succeeds, fails with an error retryable rejects, or the
// attempts run out.
func (s *Stack) retry(ctx context.Context, what string, retryable func(error) bool, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval
	b.MaxInterval = s.opts.RetryMaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		s.log.Debug().Err(err).Str("call", what).Int("attempt", attempt).Msg("retrying")
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.RetryMaxTries))
	return err
}
