package domain

import "errors"

var ErrPolicyUnavailable = errors.New("policy source unavailable")
var ErrRefreshInFlight = errors.New("refresh already in flight")
var ErrUpstreamUnavailable = errors.New("upstream unavailable")
var ErrNoSnapshot = errors.New("no snapshot available")
