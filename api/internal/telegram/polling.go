package telegram

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 15 * time.Second
)

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	d := baseDelay
	if err == nil {
		return d
	}
	s := strings.ToLower(err.Error())
	var ne net.Error
	switch {
	case strings.Contains(s, "too many requests"): // HTTP 429 от Telegram
		d = 3 * time.Second
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				d = time.Duration(n) * time.Second
			}
		}
	case errors.As(err, &ne) && ne.Timeout():
		d = 2 * time.Second
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
