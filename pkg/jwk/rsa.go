package jwk

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
)

// RSAKey is an "RSA" key.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.3
type RSAKey struct {
	metadata
	pub  *rsa.PublicKey
	priv *rsa.PrivateKey
}

var crtMembers = []ParamaterName{P, Q, DP, DQ, QI}

func rsaKeyFromValue(m metadata, v Value) (*RSAKey, error) {
	n, err := requiredBytes(v, N)
	if err != nil {
		return nil, err
	}
	e, err := requiredBytes(v, E)
	if err != nil {
		return nil, err
	}
	if len(e) > 4 {
		return nil, fmt.Errorf("%w: RSA public exponent is too large", jose.ErrInvalidKey)
	}
	exponent := new(big.Int).SetBytes(e)
	if exponent.Cmp(big.NewInt(2)) < 0 || !exponent.IsInt64() || exponent.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: invalid RSA public exponent", jose.ErrInvalidKey)
	}

	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exponent.Int64())}
	if pub.N.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid RSA modulus", jose.ErrInvalidKey)
	}

	d, hasD, err := optionalBytes(v, D)
	if err != nil {
		return nil, err
	}
	if !hasD {
		for _, name := range crtMembers {
			if _, ok := v[name]; ok {
				return nil, fmt.Errorf("%w: %q present without %q", jose.ErrInvalidKey, name, D)
			}
		}
		return &RSAKey{metadata: m, pub: pub}, nil
	}

	priv := &rsa.PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(d)}

	present := 0
	for _, name := range crtMembers {
		if _, ok := v[name]; ok {
			present++
		}
	}

	switch present {
	case 0:
		p, q, err := recoverPrimes(pub.N, big.NewInt(int64(pub.E)), priv.D)
		if err != nil {
			return nil, err
		}
		priv.Primes = []*big.Int{p, q}
	case len(crtMembers):
		p, err := requiredBytes(v, P)
		if err != nil {
			return nil, err
		}
		q, err := requiredBytes(v, Q)
		if err != nil {
			return nil, err
		}
		priv.Primes = []*big.Int{new(big.Int).SetBytes(p), new(big.Int).SetBytes(q)}
		for _, name := range []ParamaterName{DP, DQ, QI} {
			if _, err := requiredBytes(v, name); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: RSA private key must have all or none of %q", jose.ErrInvalidKey, crtMembers)
	}

	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid RSA private key: %v", jose.ErrInvalidKey, err)
	}
	priv.Precompute()

	if present > 0 {
		dp, _ := requiredBytes(v, DP)
		dq, _ := requiredBytes(v, DQ)
		qi, _ := requiredBytes(v, QI)
		if priv.Precomputed.Dp.Cmp(new(big.Int).SetBytes(dp)) != 0 ||
			priv.Precomputed.Dq.Cmp(new(big.Int).SetBytes(dq)) != 0 ||
			priv.Precomputed.Qinv.Cmp(new(big.Int).SetBytes(qi)) != 0 {
			return nil, fmt.Errorf("%w: RSA CRT parameters are inconsistent", jose.ErrInvalidKey)
		}
	}

	return &RSAKey{metadata: m, pub: &priv.PublicKey, priv: priv}, nil
}

// recoverPrimes factors n given the public and private exponents.
//
// https://nvlpubs.nist.gov/nistpubs/SpecialPublications/NIST.SP.800-56Br2.pdf (Appendix C.2)
func recoverPrimes(n, e, d *big.Int) (*big.Int, *big.Int, error) {
	one := big.NewInt(1)
	nMinusOne := new(big.Int).Sub(n, one)

	k := new(big.Int).Mul(d, e)
	k.Sub(k, one)
	if k.Sign() <= 0 || k.Bit(0) != 0 {
		return nil, nil, fmt.Errorf("%w: inconsistent RSA private exponent", jose.ErrInvalidKey)
	}

	t := k.TrailingZeroBits()
	r := new(big.Int).Rsh(k, t)

	for attempt := 0; attempt < 100; attempt++ {
		g, err := rand.Int(rand.Reader, new(big.Int).Sub(n, big.NewInt(3)))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to recover RSA primes: %w", err)
		}
		g.Add(g, big.NewInt(2))

		y := new(big.Int).Exp(g, r, n)
		if y.Cmp(one) == 0 || y.Cmp(nMinusOne) == 0 {
			continue
		}
		for j := uint(0); j < t; j++ {
			x := new(big.Int).Exp(y, big.NewInt(2), n)
			if x.Cmp(one) == 0 {
				p := new(big.Int).GCD(nil, nil, new(big.Int).Sub(y, one), n)
				q := new(big.Int).Div(n, p)
				if p.Cmp(q) < 0 {
					p, q = q, p
				}
				return p, q, nil
			}
			if x.Cmp(nMinusOne) == 0 {
				break
			}
			y = x
		}
	}

	return nil, nil, fmt.Errorf("%w: unable to recover RSA primes", jose.ErrInvalidKey)
}

func (k *RSAKey) KeyType() jwa.KeyType { return jwa.KeyTypeRSA }
func (k *RSAKey) Curve() string        { return "" }
func (k *RSAKey) IsPrivate() bool      { return k.priv != nil }
func (k *RSAKey) Size() int            { return k.pub.N.BitLen() }

func (k *RSAKey) Public() (Key, error) {
	return &RSAKey{metadata: k.metadata, pub: k.pub}, nil
}

func (k *RSAKey) Value(includePrivate bool) Value {
	v := Value{}
	k.metadata.put(v)
	v[KeyType] = jwa.KeyTypeRSA
	v[N] = base64.Encode(k.pub.N.Bytes())
	v[E] = base64.Encode(big.NewInt(int64(k.pub.E)).Bytes())
	if includePrivate && k.priv != nil {
		v[D] = base64.Encode(k.priv.D.Bytes())
		if len(k.priv.Primes) == 2 {
			v[P] = base64.Encode(k.priv.Primes[0].Bytes())
			v[Q] = base64.Encode(k.priv.Primes[1].Bytes())
			v[DP] = base64.Encode(k.priv.Precomputed.Dp.Bytes())
			v[DQ] = base64.Encode(k.priv.Precomputed.Dq.Bytes())
			v[QI] = base64.Encode(k.priv.Precomputed.Qinv.Bytes())
		}
	}
	return v
}

func (k *RSAKey) Thumbprint(h crypto.Hash) ([]byte, error) {
	return thumbprint(k, h)
}

func (k *RSAKey) thumbprintMembers() [][2]string {
	return [][2]string{
		{E, base64.Encode(big.NewInt(int64(k.pub.E)).Bytes())},
		{KeyType, jwa.KeyTypeRSA},
		{N, base64.Encode(k.pub.N.Bytes())},
	}
}

func (k *RSAKey) Supports(alg jwa.Algorithm, op Operation) bool {
	return CheckSupport(k, alg, op) == nil
}

// Material returns a copy of the *rsa.PrivateKey for private keys, and
// of the *rsa.PublicKey otherwise.
func (k *RSAKey) Material() any {
	if k.priv == nil {
		return &rsa.PublicKey{N: cloneInt(k.pub.N), E: k.pub.E}
	}
	priv := *k.priv
	priv.PublicKey = rsa.PublicKey{N: cloneInt(k.priv.N), E: k.priv.E}
	priv.D = cloneInt(k.priv.D)
	priv.Primes = make([]*big.Int, len(k.priv.Primes))
	for i, p := range k.priv.Primes {
		priv.Primes[i] = cloneInt(p)
	}
	priv.Precomputed.Dp = cloneInt(k.priv.Precomputed.Dp)
	priv.Precomputed.Dq = cloneInt(k.priv.Precomputed.Dq)
	priv.Precomputed.Qinv = cloneInt(k.priv.Precomputed.Qinv)
	return &priv
}

func (k *RSAKey) MarshalJSON() ([]byte, error) {
	return marshalKey(k)
}
