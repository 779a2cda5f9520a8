//go:build !unix

package stream

func isEINTR(err error) bool { return false }
