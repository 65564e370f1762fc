package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	registrationRecordVersionV1 = 1
	recoveryRecordVersionV1     = 1
)

// RegistrationRecord is a pending registration awaiting its confirmation
// code. The password stays in plaintext until confirmation hashes it.
type RegistrationRecord struct {
	Nickname    string
	DisplayName string
	Email       string
	Password    string
}

// RecoveryRecord is a pending password recovery for one email address.
type RecoveryRecord struct {
	Email string
}

func EncodeRegistrationRecord(record *RegistrationRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(registrationRecordVersionV1)

	for _, field := range []string{record.Nickname, record.DisplayName, record.Email, record.Password} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func DecodeRegistrationRecord(data []byte) (*RegistrationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != registrationRecordVersionV1 {
		return nil, errors.New("invalid registration record version")
	}

	record := &RegistrationRecord{}
	for _, field := range []*string{&record.Nickname, &record.DisplayName, &record.Email, &record.Password} {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in registration record")
	}
	return record, nil
}

func EncodeRecoveryRecord(record *RecoveryRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recoveryRecordVersionV1)
	if err := writeString(&buf, record.Email); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeRecoveryRecord(data []byte) (*RecoveryRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recoveryRecordVersionV1 {
		return nil, errors.New("invalid recovery record version")
	}

	email, err := readString(reader)
	if err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in recovery record")
	}
	return &RecoveryRecord{Email: email}, nil
}

func writeString(buf *bytes.Buffer, value string) error {
	if len(value) > 65535 {
		return errors.New("record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(value))); err != nil {
		return err
	}
	buf.WriteString(value)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	value := make([]byte, n)
	if _, err := io.ReadFull(reader, value); err != nil {
		return "", err
	}
	return string(value), nil
}
