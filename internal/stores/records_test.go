package stores

import "testing"

func TestRegistrationRecordCodec(t *testing.T) {
	in := &RegistrationRecord{
		Nickname:    "neo",
		DisplayName: "Thomas Anderson",
		Email:       "neo@example.com",
		Password:    "Secr3t!pass",
	}
	data, err := EncodeRegistrationRecord(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	out, err := DecodeRegistrationRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *out != *in {
		t.Fatalf("decoded record mismatch: %+v", out)
	}
}

func TestRecordDecodeRejectsCorruptData(t *testing.T) {
	data, _ := EncodeRecoveryRecord(&RecoveryRecord{Email: "a@b.io"})

	bad := append([]byte{}, data...)
	bad[0] = 9
	if _, err := DecodeRecoveryRecord(bad); err == nil {
		t.Fatal("expected unknown version to be rejected")
	}
	if _, err := DecodeRecoveryRecord(data[:len(data)-1]); err == nil {
		t.Fatal("expected truncated record to be rejected")
	}
	if _, err := DecodeRegistrationRecord(data); err == nil {
		t.Fatal("expected recovery bytes to fail registration decode")
	}
}
