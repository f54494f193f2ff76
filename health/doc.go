// Package health reports whether a graphcache client is in a usable state.
//
// A Checker inspects one component and returns a Result whose Status is
// Healthy, Degraded, or Unhealthy. An Aggregator runs a set of checkers
// under a shared timeout and folds their results into one overall status.
//
//	agg := client.Health()
//	report := agg.CheckAll(ctx)
//	if report.Status != health.StatusHealthy {
//	    log.Printf("graphcache: %v", report.Results)
//	}
package health
