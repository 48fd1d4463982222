package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to unblock a producer goroutine when the consumer gives up on a
// stream mid-way, for example a flushed playback segment whose synthesis is
// still emitting chunks.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
