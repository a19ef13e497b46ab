package tool

import (
	"testing"
)

const testPrivateKeyHex = "8170940a65bda743704be89096ce6d292f052dbb897f4b7aa5d92aa1d0e64531"

func TestSignAndVerify(t *testing.T) {
	message := "1714564800000:U1:tok-1"
	sig, err := SignMessage(message, testPrivateKeyHex)
	if err != nil {
		t.Fatalf("SignMessage() failed, err: %v", err)
	}
	publicKey, err := PublicKeyHex(testPrivateKeyHex)
	if err != nil {
		t.Fatal(err)
	}

	verified, err := VerifySign(message, sig, publicKey)
	if err != nil || !verified {
		t.Fatalf("VerifySign() verified=%v err=%v", verified, err)
	}

	verified, err = VerifySign(message+"x", sig, publicKey)
	if err != nil || verified {
		t.Errorf("tampered message verified=%v err=%v", verified, err)
	}
}

func TestVerifySignRejectsGarbage(t *testing.T) {
	publicKey, _ := PublicKeyHex(testPrivateKeyHex)
	if _, err := VerifySign("m", "zz", publicKey); err == nil {
		t.Error("non-hex signature accepted")
	}
	if _, err := VerifySign("m", "3044", publicKey); err == nil {
		t.Error("truncated DER accepted")
	}
	if _, err := VerifySign("m", "3044", "02abcd"); err == nil {
		t.Error("bad public key accepted")
	}
}
