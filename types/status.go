package types

// TestStatus represents the possible outcomes of a module execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s TestStatus) Valid() bool {
	switch s {
	case TestStatusPass, TestStatusFail, TestStatusSkip, TestStatusError:
		return true
	}
	return false
}

func (s TestStatus) String() string {
	return string(s)
}
