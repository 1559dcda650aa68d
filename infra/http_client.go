package infra

import (
	"time"

	"github.com/imroc/req/v3"
)

// ProvideHTTPClient builds the retrying client the webhook notifier
// posts admission events with.
func ProvideHTTPClient() *req.Client {
	return req.C().
		SetTimeout(10 * time.Second).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(3 * time.Second)
}
