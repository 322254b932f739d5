package frame

// Find returns the offset of the first complete magic sequence in buf, or
// ok == false when buf holds none. A trailing Magic[0] without its second
// byte is not a match; the caller keeps it until the next chunk arrives.
func Find(buf []byte) (offset int, ok bool) {
	for i := 0; i+len(Magic) <= len(buf); i++ {
		if buf[i] == Magic[0] && buf[i+1] == Magic[1] {
			return i, true
		}
	}
	return 0, false
}
