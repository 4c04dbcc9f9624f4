package identifier

import (
	"fmt"
	"strings"
	"testing"
)

// buildValid computes the two check digits for a 9-digit prefix using the
// official algorithm, independently from the implementation under test.
func buildValid(prefix string) string {
	if len(prefix) != 9 {
		panic("prefix must be 9 digits")
	}
	digits := prefix
	for pass := 0; pass < 2; pass++ {
		n := len(digits)
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		rem := (sum * 10) % 11
		if rem >= 10 {
			rem = 0
		}
		digits += string(rune('0' + rem))
	}
	return digits
}

func TestValidateGeneratedSequences(t *testing.T) {
	prefixes := []string{
		"529982247", "111444777", "123456789", "987654320",
		"000000019", "314159265", "271828182", "555001234",
	}
	for _, p := range prefixes {
		cpf := buildValid(p)
		if !Validate(cpf) {
			t.Errorf("Validate(%s) = false, want true", cpf)
		}
	}
}

func TestValidateRejectsSingleDigitMutations(t *testing.T) {
	cpf := buildValid("529982247")
	for i := 0; i < len(cpf); i++ {
		for d := byte('0'); d <= '9'; d++ {
			if d == cpf[i] {
				continue
			}
			mutated := cpf[:i] + string(d) + cpf[i+1:]
			// A mutated prefix demands different check digits, so the mutation
			// must validate exactly when it equals its own reconstruction.
			want := buildValid(mutated[:9]) == mutated
			if got := Validate(mutated); got != want {
				t.Errorf("Validate(%s) = %v, want %v (mutation of %s at position %d)", mutated, got, want, cpf, i)
			}
		}
	}
}

func TestValidateRejectsAllEqualDigits(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		seq := strings.Repeat(string(d), 11)
		if Validate(seq) {
			t.Errorf("Validate(%s) = true, want false", seq)
		}
	}
}

func TestValidateRejectsWrongLength(t *testing.T) {
	for _, in := range []string{"", "1234567890", "123456789012", "abcdefghijk"} {
		if Validate(in) {
			t.Errorf("Validate(%q) = true, want false", in)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"529.982.247-25":  "52998224725",
		"529 982 247 25":  "52998224725",
		"52998224725":     "52998224725",
		"cpf: 529.982...": "529982",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskRoundTrip(t *testing.T) {
	cpf := buildValid("529982247")
	masked := Mask(cpf)
	want := fmt.Sprintf("%s.%s.%s-%s", cpf[0:3], cpf[3:6], cpf[6:9], cpf[9:11])
	if masked != want {
		t.Fatalf("Mask(%s) = %q, want %q", cpf, masked, want)
	}

	// Masking an already-masked value and normalizing yields the same digits.
	again := Mask(masked)
	if Normalize(again) != cpf {
		t.Errorf("Normalize(Mask(Mask(x))) = %q, want %q", Normalize(again), cpf)
	}
}

func TestMaskDisplayHidesAllButCheckDigits(t *testing.T) {
	cpf := buildValid("529982247")

	for _, in := range []string{cpf, Mask(cpf)} {
		got := MaskDisplay(in)
		if got != "***.***.***-"+cpf[9:11] {
			t.Errorf("MaskDisplay(%q) = %q", in, got)
		}
		if strings.Contains(got, cpf[:9]) || Normalize(got) != cpf[9:11] {
			t.Errorf("MaskDisplay(%q) = %q still carries identifier digits", in, got)
		}
	}

	for _, in := range []string{"1234", "", "123456789012"} {
		if got := MaskDisplay(in); got != in {
			t.Errorf("MaskDisplay(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestMaskNonElevenDigitsUnchanged(t *testing.T) {
	for _, in := range []string{"1234", "", "123456789012"} {
		if got := Mask(in); got != in {
			t.Errorf("Mask(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	pepper := strings.Repeat("p", 32)
	h, err := NewHasher(pepper)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	a := h.Hash("52998224725")
	b := h.Hash("52998224725")
	if a != b {
		t.Errorf("Hash not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Hash length = %d, want 64 hex chars", len(a))
	}

	c := h.Hash("11144477735")
	if a == c {
		t.Error("different inputs produced the same hash")
	}

	h2, err := NewHasher(strings.Repeat("q", 32))
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if h2.Hash("52998224725") == a {
		t.Error("different peppers produced the same hash")
	}
}

func TestNewHasherRequiresPepper(t *testing.T) {
	if _, err := NewHasher(""); err != ErrNoPepper {
		t.Errorf("NewHasher(\"\") error = %v, want ErrNoPepper", err)
	}
	if _, err := NewHasher(strings.Repeat("x", 31)); err != ErrNoPepper {
		t.Errorf("NewHasher(31 chars) error = %v, want ErrNoPepper", err)
	}
}

func TestMaskText(t *testing.T) {
	valid := buildValid("529982247")
	validFormatted := Mask(valid)
	tail := valid[9:11]

	cases := []struct {
		name, in, want string
	}{
		{
			name: "formatted valid identifier is masked",
			in:   "meu cpf é " + validFormatted + " obrigado",
			want: "meu cpf é ***.***.***-" + tail + " obrigado",
		},
		{
			name: "bare valid identifier is masked",
			in:   "cpf " + valid,
			want: "cpf ***.***.***-" + tail,
		},
		{
			name: "invalid sequence is untouched",
			in:   "pedido 12345678901 confirmado",
			want: "pedido 12345678901 confirmado",
		},
		{
			name: "longer digit runs are untouched",
			in:   "código de barras 846100000005299822472512345",
			want: "código de barras 846100000005299822472512345",
		},
		{
			name: "no identifiers",
			in:   "bom dia, preciso de ajuda",
			want: "bom dia, preciso de ajuda",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskText(tc.in); got != tc.want {
				t.Errorf("MaskText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
