package xcrypto

import "runtime"

// Zero はバイト列をゼロで上書きする。
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
