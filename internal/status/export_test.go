package status

// TestSummary exposes testSummary to the external status_test package
var TestSummary = testSummary
