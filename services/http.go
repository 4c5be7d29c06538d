package services

import (
	"net/http"
	"sync"
	"time"
)

// DefaultHttpClient is shared by tools that download documents
var DefaultHttpClient = sync.OnceValue(func() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
	}
})
