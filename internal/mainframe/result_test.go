package mainframe

import (
	"errors"
	"testing"
)

func TestParseResult(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		body        string
		wantCode    int
		wantMessage string
	}{
		{
			name:        "top level english fields",
			body:        `<result><code>0</code><message>ok</message></result>`,
			wantCode:    0,
			wantMessage: "ok",
		},
		{
			name:        "german aliases",
			body:        `<Antwort><Rueckgabewert>17</Rueckgabewert><Meldung>Kunde unbekannt</Meldung></Antwort>`,
			wantCode:    17,
			wantMessage: "Kunde unbekannt",
		},
		{
			name:        "nested fields",
			body:        `<envelope><response><header><resultCode> 3 </resultCode><msg>busy</msg></header></response></envelope>`,
			wantCode:    3,
			wantMessage: "busy",
		},
		{
			name:     "missing message",
			body:     `<result><returncode>0</returncode></result>`,
			wantCode: 0,
		},
		{
			name:        "top level alias wins over nested",
			body:        `<result><status>5</status><detail><code>0</code></detail><Fehlertext>x</Fehlertext></result>`,
			wantCode:    5,
			wantMessage: "x",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result, err := ParseResult(tc.body)
			if err != nil {
				t.Fatalf("ParseResult() error = %v", err)
			}
			if result.Code != tc.wantCode {
				t.Fatalf("Code = %d, want %d", result.Code, tc.wantCode)
			}
			if result.Message != tc.wantMessage {
				t.Fatalf("Message = %q, want %q", result.Message, tc.wantMessage)
			}
			if result.OK() != (tc.wantCode == ResultCodeOK) {
				t.Fatalf("OK() = %v for code %d", result.OK(), result.Code)
			}
		})
	}
}

func TestParseResultProtocolErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "malformed", body: "<result><code>0</code>"},
		{name: "no code", body: "<result><message>hello</message></result>"},
		{name: "non numeric code", body: "<result><code>OK</code></result>"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseResult(tc.body)

			var protocolErr *ProtocolError
			if !errors.As(err, &protocolErr) {
				t.Fatalf("ParseResult() error = %v, want ProtocolError", err)
			}
		})
	}
}
