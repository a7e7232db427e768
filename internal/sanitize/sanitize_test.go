package sanitize

import (
	"encoding/base64"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "svchost.exe", "svchost.exe"},
		{"empty", "", ""},
		{"nul padding", "explorer.exe\x00\x00\x00", "explorer.exe"},
		{"control chars", "\x01C:\\Windows\x7f", "C:\\Windows"},
		{"base64", base64.StdEncoding.EncodeToString([]byte("NT AUTHORITY\\SYSTEM")), "NT AUTHORITY\\SYSTEM"},
		{"hex", hex.EncodeToString([]byte("backup.exe")), "backup.exe"},
		{"padded base64", base64.StdEncoding.EncodeToString([]byte("lsass.exe")) + "\x00", "lsass.exe"},
		{"short decode rejected", "YWI=", "YWI="},
		{"binary decode rejected", base64.StdEncoding.EncodeToString([]byte{0x00, 0x01, 0x02, 0x03}), "AAECAw=="},
		{"invalid utf8 dropped", "abc\xffdef", "abcdef"},
		{"nested encodings", base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString([]byte("nested value")))), "nested value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.in))
		})
	}
}

const printable = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"

func randomText(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = printable[r.Intn(len(printable))]
	}
	return string(b)
}

func TestDecode_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	inputs := []string{
		"\x00\x00",
		"QUJD",
		base64.StdEncoding.EncodeToString([]byte(base64.StdEncoding.EncodeToString([]byte("twice encoded")))),
		hex.EncodeToString([]byte("414243")),
	}
	for i := 0; i < 500; i++ {
		inputs = append(inputs, randomText(r, 1+r.Intn(40)))
		inputs = append(inputs, base64.StdEncoding.EncodeToString([]byte(randomText(r, 1+r.Intn(40)))))
		inputs = append(inputs, hex.EncodeToString([]byte(randomText(r, 1+r.Intn(20)))))
	}
	for _, in := range inputs {
		once := Decode(in)
		assert.Equal(t, once, Decode(once), "input %q", in)
	}
}

// Round-trip gives way to idempotence: "YWJj" is itself the encoding of "abc", so it
// decodes to "abc" and so does its own encoding "WVdKag==". Only text that Decode leaves
// unchanged is expected to survive an encode and decode.
func TestDecode_Base64RoundTrip(t *testing.T) {
	assert.Equal(t, "abc", Decode("YWJj"))
	assert.Equal(t, "abc", Decode("WVdKag=="))
	assert.Equal(t, "abc", Decode(base64.StdEncoding.EncodeToString([]byte("abc"))))

	r := rand.New(rand.NewSource(2))
	checked := 0
	for i := 0; i < 500; i++ {
		s := randomText(r, 3+r.Intn(40))
		if Decode(s) != s {
			// s itself reads as encoded text; round-trip holds for stable text only
			continue
		}
		checked++
		assert.Equal(t, s, Decode(base64.StdEncoding.EncodeToString([]byte(s))), "input %q", s)
	}
	assert.Greater(t, checked, 400)
}
