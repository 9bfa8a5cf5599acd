package types

import "testing"

func TestScriptType_String(t *testing.T) {
	tests := []struct {
		st   ScriptType
		want string
	}{
		{ScriptTypeP2PKH, "P2PKH"},
		{ScriptTypeP2SH, "P2SH"},
		{ScriptTypeFederationMultisig, "FederationMultisig"},
		{ScriptTypeBridge, "Bridge"},
		{ScriptType(0xFF), "Unknown"},
		{ScriptType(0x00), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.st.String(); got != tt.want {
				t.Errorf("ScriptType(%#x).String() = %q, want %q", uint8(tt.st), got, tt.want)
			}
		})
	}
}

func TestScriptType_Values(t *testing.T) {
	// Verify the actual byte values are correct (these are protocol constants).
	if ScriptTypeP2PKH != 0x01 {
		t.Errorf("P2PKH = %#x, want 0x01", uint8(ScriptTypeP2PKH))
	}
	if ScriptTypeP2SH != 0x02 {
		t.Errorf("P2SH = %#x, want 0x02", uint8(ScriptTypeP2SH))
	}
	if ScriptTypeFederationMultisig != 0x03 {
		t.Errorf("FederationMultisig = %#x, want 0x03", uint8(ScriptTypeFederationMultisig))
	}
	if ScriptTypeBridge != 0x30 {
		t.Errorf("Bridge = %#x, want 0x30", uint8(ScriptTypeBridge))
	}
}

func TestScript_JSONRoundTrip(t *testing.T) {
	s := Script{Type: ScriptTypeFederationMultisig, Data: []byte{0x02, 0x03, 0xAA, 0xBB}}
	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}
	var decoded Script
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON() error: %v", err)
	}
	if decoded.Type != s.Type {
		t.Errorf("Type = %v, want %v", decoded.Type, s.Type)
	}
	if string(decoded.Data) != string(s.Data) {
		t.Errorf("Data = %x, want %x", decoded.Data, s.Data)
	}
}
