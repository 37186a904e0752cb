package service

import "time"

// Clock abstracts the wall clock so window arithmetic can be tested.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
