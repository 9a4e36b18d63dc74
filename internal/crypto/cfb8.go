package crypto

import "crypto/cipher"

// cfb8 is CFB mode with a one-byte feedback register. The wire protocol
// predates AEAD adoption and fixed on this variant; crypto/cipher only
// ships full-block CFB, so it is implemented here.
type cfb8 struct {
	block     cipher.Block
	shift     []byte
	keystream []byte
	decrypt   bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	bs := block.BlockSize()
	s := &cfb8{
		block:     block,
		shift:     make([]byte, bs),
		keystream: make([]byte, bs),
		decrypt:   decrypt,
	}
	copy(s.shift, iv)
	return s
}

func (x *cfb8) XORKeyStream(dst, src []byte) {
	bs := x.block.BlockSize()
	for i := 0; i < len(src); i++ {
		x.block.Encrypt(x.keystream, x.shift)
		in := src[i]
		out := in ^ x.keystream[0]
		dst[i] = out
		// the ciphertext byte feeds the register on both directions
		fed := out
		if x.decrypt {
			fed = in
		}
		copy(x.shift, x.shift[1:bs])
		x.shift[bs-1] = fed
	}
}
