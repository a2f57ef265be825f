//go:build !unix

package extsort

func openFileLimit() int {
	return 0
}
