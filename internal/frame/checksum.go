// internal/frame/checksum.go
package frame

// Checksum returns the byte that makes the covered bytes sum to zero mod 256.
func Checksum(data ...[]byte) byte {
	var sum byte
	for _, d := range data {
		for _, b := range d {
			sum -= b
		}
	}
	return sum
}
