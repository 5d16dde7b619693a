package inspect

import (
	"crypto/md5"
	"fmt"
	"strings"
	"unicode/utf8"
)

// FormatValue renders a column value: ASCII text as text:'…', anything else
// as hex:0x….
func FormatValue(b []byte) string {
	if utf8.Valid(b) && isASCII(b) {
		return fmt.Sprintf("text:'%s'", b)
	}
	return "hex:" + HexString(b)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// HexString renders bytes as a 0x-prefixed lowercase hex string.
func HexString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b)*2 + 2)
	sb.WriteString("0x")
	for _, c := range b {
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}

// MD5PasswordResponse computes the md5 auth answer:
// "md5" + hex(md5(hex(md5(password + user)) + salt)).
func MD5PasswordResponse(user, password string, salt [4]byte) string {
	first := md5.Sum([]byte(password + user))
	firstHex := fmt.Sprintf("%x", first)
	outer := md5.Sum(append([]byte(firstHex), salt[:]...))
	return fmt.Sprintf("md5%x", outer)
}
