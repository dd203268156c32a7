package sigv1

import (
	"encoding/json"
	"testing"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	got, err := Canonicalize([]byte(`{"to": "0xb", "amount": 5, "from": "0xa"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"amount":5,"from":"0xa","to":"0xb"}`
	if string(got) != want {
		t.Errorf("canonical form = %s, want %s", got, want)
	}
}

func TestCanonicalizeNested(t *testing.T) {
	got, err := Canonicalize([]byte(`{"z": {"b": [2, 1], "a": true}, "a": null}`))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":null,"z":{"a":true,"b":[2,1]}}`
	if string(got) != want {
		t.Errorf("canonical form = %s, want %s", got, want)
	}
}

func TestCanonicalizePreservesNumerals(t *testing.T) {
	// Large integers and high-precision decimals must not be reformatted
	// through float64 — that is exactly the cross-producer mismatch the
	// canonical form exists to prevent.
	cases := []struct{ in, want string }{
		{`{"amount": 1000000000000000000}`, `{"amount":1000000000000000000}`},
		{`{"amount": 0.000000001}`, `{"amount":0.000000001}`},
		{`{"amount": 1e18}`, `{"amount":1e18}`},
	}
	for _, tc := range cases {
		got, err := Canonicalize([]byte(tc.in))
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Errorf("Canonicalize(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	if _, err := Canonicalize([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Error("expected error for trailing data")
	}
	if _, err := Canonicalize([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// TestIndependentProducersAgree is the round-trip property: two producers
// serializing the same field set through different intermediate shapes must
// emit byte-identical canonical bodies.
func TestIndependentProducersAgree(t *testing.T) {
	type txBody struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount int64  `json:"amount"`
	}

	// Producer A: struct with declared field order from,to,amount
	a, err := CanonicalBody(txBody{From: "0xa", To: "0xb", Amount: 42})
	if err != nil {
		t.Fatal(err)
	}

	// Producer B: map built in a different insertion order
	b, err := CanonicalBody(map[string]interface{}{
		"to":     "0xb",
		"amount": 42,
		"from":   "0xa",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Producer C: raw JSON with arbitrary whitespace and ordering
	c, err := Canonicalize([]byte("{\n  \"to\": \"0xb\",\n  \"from\": \"0xa\",\n  \"amount\": 42\n}"))
	if err != nil {
		t.Fatal(err)
	}

	if string(a) != string(b) || string(b) != string(c) {
		t.Errorf("producers disagree:\n a=%s\n b=%s\n c=%s", a, b, c)
	}
}

func TestSignVerify(t *testing.T) {
	secret := []byte("test-secret")
	payload := Payload("POST", "/v1/relay", []byte(`{"amount":1}`), 1700000000000, "abc123")

	sig := Sign(secret, payload)
	if !Verify(secret, payload, sig) {
		t.Error("valid signature failed verification")
	}
	if Verify(secret, payload, sig[:len(sig)-2]+"ff") {
		t.Error("tampered signature passed verification")
	}
	if Verify([]byte("other-secret"), payload, sig) {
		t.Error("signature verified under wrong secret")
	}
}

func TestPayloadLayout(t *testing.T) {
	got := Payload("POST", "/v1/relay", []byte(`{"a":1}`), 1700000000000, "n0nce")
	want := `POST|/v1/relay|{"a":1}|1700000000000|n0nce`
	if string(got) != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func TestNewNonceUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := NewNonce()
		if seen[n] {
			t.Fatalf("duplicate nonce %s", n)
		}
		seen[n] = true
	}
}

func TestCanonicalBodyIsValidJSON(t *testing.T) {
	got, err := CanonicalBody(map[string]interface{}{
		"note": "unicode ✓ and \"quotes\"",
		"n":    json.Number("3.14"),
	})
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]interface{}
	if err := json.Unmarshal(got, &v); err != nil {
		t.Errorf("canonical output is not valid JSON: %v (%s)", err, got)
	}
}
