// Package worker implements the worker service C6 describes: a pool of
// W=3 threads, each with its own store connection and broker client,
// consuming the shared job queue with prefetch 3 and manual ack.
//
// Each thread is single-threaded with respect to its own broker
// client: a delivery's handler runs to completion, including the full
// job execution, before that client's connection loop services the
// next delivery. This mirrors the broker package's single-goroutine
// ownership model and is why prefetch exists at all — it lets the
// broker buffer ahead of a slow consumer instead of stalling the
// publisher side.
//
// Job execution goes through the runner.Runner interface rather than
// shelling out directly, so tests can swap in runner.FakeRunner without
// a real ansible-playbook binary on the test machine.
package worker
