package testdata

import "crypto/cipher"

// CFBEncrypt produces OpenPGP-style CFB ciphertext (an all-zero IV) for
// plaintext under block, using stdlib's own CFB implementation rather than
// this module's hazmat/symcipher, so tests built on it serve as an
// independent oracle for Handle.Decrypt.
func CFBEncrypt(block cipher.Block, plaintext []byte) []byte {
	iv := make([]byte, block.BlockSize())
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(ciphertext, plaintext)
	return ciphertext
}
