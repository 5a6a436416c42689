package prediction

import (
	"math"
	"math/rand/v2"
)

// lstmNet is a single LSTM layer followed by dropout, a ReLU dense layer and
// a linear scalar output. Gate rows are laid out input, forget, cell, output.
type lstmNet struct {
	in, units, dense int
	dropout          float64

	wx []float64 // 4*units x in
	wh []float64 // 4*units x units
	b  []float64 // 4*units
	w1 []float64 // dense x units
	b1 []float64 // dense
	w2 []float64 // dense
	b2 []float64 // 1
}

func newLSTMNet(in, units, dense int, dropout float64, rng *rand.Rand) *lstmNet {
	n := &lstmNet{
		in:      in,
		units:   units,
		dense:   dense,
		dropout: dropout,
		wx:      glorot(rng, 4*units*in, in, 4*units),
		wh:      glorot(rng, 4*units*units, units, 4*units),
		b:       make([]float64, 4*units),
		w1:      glorot(rng, dense*units, units, dense),
		b1:      make([]float64, dense),
		w2:      glorot(rng, dense, dense, 1),
		b2:      make([]float64, 1),
	}
	for j := 0; j < units; j++ {
		n.b[units+j] = 1
	}
	return n
}

func glorot(rng *rand.Rand, size, fanIn, fanOut int) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	w := make([]float64, size)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return w
}

func (n *lstmNet) params() [][]float64 {
	return [][]float64{n.wx, n.wh, n.b, n.w1, n.b1, n.w2, n.b2}
}

func (n *lstmNet) zeroGrads() [][]float64 {
	ps := n.params()
	g := make([][]float64, len(ps))
	for i, p := range ps {
		g[i] = make([]float64, len(p))
	}
	return g
}

// lstmCache holds the activations of one forward pass for backprop.
type lstmCache struct {
	xs    [][]float64
	hs    [][]float64 // hs[0] is the zero initial state
	cs    [][]float64
	gates [][]float64 // activated gates per step
	mask  []float64
	hd    []float64
	a1    []float64
	r     []float64
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// forward runs one sequence. mask is the dropout multiplier on the final
// hidden state; nil disables dropout.
func (n *lstmNet) forward(xs [][]float64, mask []float64, c *lstmCache) float64 {
	u := n.units
	T := len(xs)

	c.xs = xs
	c.hs = make([][]float64, T+1)
	c.cs = make([][]float64, T+1)
	c.gates = make([][]float64, T)
	c.hs[0] = make([]float64, u)
	c.cs[0] = make([]float64, u)

	for t, x := range xs {
		hprev, cprev := c.hs[t], c.cs[t]
		g := make([]float64, 4*u)
		for k := 0; k < 4*u; k++ {
			z := n.b[k]
			wx := n.wx[k*n.in : (k+1)*n.in]
			for i, v := range x {
				z += wx[i] * v
			}
			wh := n.wh[k*u : (k+1)*u]
			for j, v := range hprev {
				z += wh[j] * v
			}
			if k >= 2*u && k < 3*u {
				g[k] = math.Tanh(z)
			} else {
				g[k] = sigmoid(z)
			}
		}
		h := make([]float64, u)
		cell := make([]float64, u)
		for j := 0; j < u; j++ {
			cell[j] = g[u+j]*cprev[j] + g[j]*g[2*u+j]
			h[j] = g[3*u+j] * math.Tanh(cell[j])
		}
		c.gates[t] = g
		c.hs[t+1] = h
		c.cs[t+1] = cell
	}

	c.mask = mask
	c.hd = make([]float64, u)
	for j, v := range c.hs[T] {
		if mask != nil {
			v *= mask[j]
		}
		c.hd[j] = v
	}

	c.a1 = make([]float64, n.dense)
	c.r = make([]float64, n.dense)
	y := n.b2[0]
	for m := 0; m < n.dense; m++ {
		a := n.b1[m]
		w := n.w1[m*u : (m+1)*u]
		for j, v := range c.hd {
			a += w[j] * v
		}
		c.a1[m] = a
		c.r[m] = math.Max(0, a)
		y += n.w2[m] * c.r[m]
	}
	return y
}

// backward accumulates the gradient of the loss into grads given dy, the
// loss derivative with respect to the output.
func (n *lstmNet) backward(c *lstmCache, dy float64, grads [][]float64) {
	u := n.units
	gwx, gwh, gb, gw1, gb1, gw2, gb2 := grads[0], grads[1], grads[2], grads[3], grads[4], grads[5], grads[6]

	gb2[0] += dy
	dh := make([]float64, u)
	for m := 0; m < n.dense; m++ {
		gw2[m] += dy * c.r[m]
		if c.a1[m] <= 0 {
			continue
		}
		da := dy * n.w2[m]
		gb1[m] += da
		w := n.w1[m*u : (m+1)*u]
		gw := gw1[m*u : (m+1)*u]
		for j := 0; j < u; j++ {
			gw[j] += da * c.hd[j]
			dh[j] += da * w[j]
		}
	}
	if c.mask != nil {
		for j := range dh {
			dh[j] *= c.mask[j]
		}
	}

	dcNext := make([]float64, u)
	dz := make([]float64, 4*u)
	for t := len(c.xs) - 1; t >= 0; t-- {
		g := c.gates[t]
		cell, cprev, hprev, x := c.cs[t+1], c.cs[t], c.hs[t], c.xs[t]
		for j := 0; j < u; j++ {
			i, f, gg, o := g[j], g[u+j], g[2*u+j], g[3*u+j]
			tc := math.Tanh(cell[j])
			do := dh[j] * tc
			dc := dcNext[j] + dh[j]*o*(1-tc*tc)
			dcNext[j] = dc * f

			dz[j] = dc * gg * i * (1 - i)
			dz[u+j] = dc * cprev[j] * f * (1 - f)
			dz[2*u+j] = dc * i * (1 - gg*gg)
			dz[3*u+j] = do * o * (1 - o)
		}

		dhPrev := make([]float64, u)
		for k := 0; k < 4*u; k++ {
			d := dz[k]
			gb[k] += d
			gx := gwx[k*n.in : (k+1)*n.in]
			for i, v := range x {
				gx[i] += d * v
			}
			wh := n.wh[k*u : (k+1)*u]
			gh := gwh[k*u : (k+1)*u]
			for j, v := range hprev {
				gh[j] += d * v
				dhPrev[j] += d * wh[j]
			}
		}
		dh = dhPrev
	}
}

// adam is the Adam optimiser over a fixed parameter set.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		a.m[i] = make([]float64, len(p))
		a.v[i] = make([]float64, len(p))
	}
	return a
}

func (a *adam) step(params, grads [][]float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range params {
		m, v, g := a.m[i], a.v[i], grads[i]
		for k := range p {
			m[k] = a.beta1*m[k] + (1-a.beta1)*g[k]
			v[k] = a.beta2*v[k] + (1-a.beta2)*g[k]*g[k]
			p[k] -= a.lr * (m[k] / c1) / (math.Sqrt(v[k]/c2) + a.eps)
		}
	}
}
