package mixedmodel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const eps = 2.220446049250313e-16

// Relative cutoff for singular values in pinv.
const pinvRcond = 1e-12

// addScaledSym adds s*m to dst.  Only the upper triangle of m is
// read, m is assumed to be symmetric.
func addScaledSym(dst *mat.SymDense, s float64, m mat.Matrix) {

	raw := dst.RawSymmetric()
	n := raw.N

	switch m := m.(type) {
	case mat.Diagonal:
		for i := 0; i < n; i++ {
			raw.Data[i*raw.Stride+i] += s * m.At(i, i)
		}
	case *mat.Dense:
		rm := m.RawMatrix()
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				raw.Data[i*raw.Stride+j] += s * rm.Data[i*rm.Stride+j]
			}
		}
	case *mat.SymDense:
		rm := m.RawSymmetric()
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				raw.Data[i*raw.Stride+j] += s * rm.Data[i*rm.Stride+j]
			}
		}
	default:
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				raw.Data[i*raw.Stride+j] += s * m.At(i, j)
			}
		}
	}
}

// invertSym returns the inverse of v and log|det(v)|.  V is a
// covariance matrix, so a failed Cholesky factorization means that
// the variance components do not give a valid model.
func invertSym(v *mat.SymDense) (*mat.SymDense, float64, error) {

	var chol mat.Cholesky
	if !chol.Factorize(v) {
		return nil, 0, numericalError(ErrVNotPosDef, -1, "")
	}

	vinv := mat.NewSymDense(v.SymmetricDim(), nil)
	if err := chol.InverseTo(vinv); err != nil {
		return nil, 0, numericalError(ErrSingular, -1, "covariance matrix V: %v", err)
	}

	return vinv, chol.LogDet(), nil
}

// pinv returns the Moore-Penrose pseudo-inverse of a along with the
// numerical rank of a and the log of the product of its non-zero
// singular values.  Singular values below pinvRcond times the largest
// singular value are treated as zero.  For a symmetric positive
// semidefinite matrix of full rank the last value is log|det(a)|.
func pinv(a mat.Matrix) (*mat.Dense, int, float64, error) {

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, 0, 0, numericalError(ErrSingular, -1, "SVD failed")
	}

	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := 0.0
	if len(s) > 0 {
		tol = pinvRcond * s[0]
	}

	rank := 0
	var logdet float64
	vr, vc := v.Dims()
	for k := 0; k < vc; k++ {
		f := 0.0
		if s[k] > tol {
			f = 1 / s[k]
			logdet += math.Log(s[k])
			rank++
		}
		for i := 0; i < vr; i++ {
			v.Set(i, k, f*v.At(i, k))
		}
	}

	var p mat.Dense
	p.Mul(&v, u.T())

	return &p, rank, logdet, nil
}

// matrixRank returns the numerical rank of a.  Singular values below
// max(r, c)*eps times the largest singular value are treated as zero.
func matrixRank(a mat.Matrix) (int, error) {

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0, numericalError(ErrSingular, -1, "SVD failed")
	}

	r, c := a.Dims()
	return svd.Rank(float64(max(r, c)) * eps), nil
}

// mulCov returns w * cov, where cov is a random effect covariance
// matrix.  Diagonal covariances scale the columns of w and never
// form a dense product.
func mulCov(w mat.Matrix, cov mat.Matrix) *mat.Dense {

	if d, ok := cov.(mat.Diagonal); ok {
		out := mat.DenseCopyOf(w)
		r, c := out.Dims()
		raw := out.RawMatrix()
		for j := 0; j < c; j++ {
			f := d.At(j, j)
			for i := 0; i < r; i++ {
				raw.Data[i*raw.Stride+j] *= f
			}
		}
		return out
	}

	var out mat.Dense
	out.Mul(w, cov)
	return &out
}

// mulCovVec returns cov * u.
func mulCovVec(cov mat.Matrix, u mat.Vector) *mat.VecDense {

	n := u.Len()
	out := mat.NewVecDense(n, nil)

	if d, ok := cov.(mat.Diagonal); ok {
		for i := 0; i < n; i++ {
			out.SetVec(i, d.At(i, i)*u.AtVec(i))
		}
		return out
	}

	out.MulVec(cov, u)
	return out
}

// traceMul returns trace(a * b) without forming the product.
func traceMul(a, b *mat.Dense) float64 {

	ra := a.RawMatrix()
	rb := b.RawMatrix()

	var tr float64
	for i := 0; i < ra.Rows; i++ {
		for k := 0; k < ra.Cols; k++ {
			tr += ra.Data[i*ra.Stride+k] * rb.Data[k*rb.Stride+i]
		}
	}

	return tr
}

// isSymmetric checks a square matrix for symmetry, relative to the
// largest absolute element.
func isSymmetric(m mat.Matrix) bool {

	if _, ok := m.(mat.Symmetric); ok {
		return true
	}

	n, _ := m.Dims()
	var scale float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			scale = math.Max(scale, math.Abs(m.At(i, j)))
		}
	}

	tol := 1e-10 * scale
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return false
			}
		}
	}

	return true
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
