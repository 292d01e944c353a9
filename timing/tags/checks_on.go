//go:build !nocheck

package tags

const checksEnabled = true
