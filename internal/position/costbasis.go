package position

// Execution is one filled slice of an order as it affects the cost basis.
// Cost defaults to Quantity*Price when zero.
type Execution struct {
	Quantity   float64
	Price      float64
	Cost       float64
	Commission float64
}

func (x Execution) cost() float64 {
	if x.Cost != 0 {
		return x.Cost
	}
	return x.Quantity * x.Price
}

// ApplyBuy folds a buy execution into quantity, funding and cost basis.
func (e *Editor) ApplyBuy(x Execution) {
	if x.Quantity <= 0 {
		return
	}
	r := e.r
	cost := x.cost()
	prevQty := r.quantity
	newQty := prevQty + x.Quantity
	newTotal := r.totalCost + cost
	r.funding -= cost + x.Commission

	if prevQty < 0 && newQty >= 0 {
		r.quantity = newQty
		r.totalCost = newQty * x.Price
		r.averagePrice = x.Price
		return
	}
	if newQty < 0 {
		newTotal = r.totalCost + priorBasis(r.averagePrice, prevQty, x.Price)*x.Quantity
	}
	e.finishRecompute(newQty, newTotal)
}

// ApplySell is the mirror of ApplyBuy with quantity decreasing.
func (e *Editor) ApplySell(x Execution) {
	if x.Quantity <= 0 {
		return
	}
	r := e.r
	cost := x.cost()
	prevQty := r.quantity
	newQty := prevQty - x.Quantity
	newTotal := r.totalCost - cost
	r.funding += cost - x.Commission

	if prevQty > 0 && newQty <= 0 {
		r.quantity = newQty
		r.totalCost = newQty * x.Price
		r.averagePrice = x.Price
		return
	}
	if newQty > 0 {
		newTotal = r.totalCost - priorBasis(r.averagePrice, prevQty, x.Price)*x.Quantity
	}
	e.finishRecompute(newQty, newTotal)
}

// Apply routes by side.
func (e *Editor) Apply(side Side, x Execution) {
	if side == SideBuy {
		e.ApplyBuy(x)
		return
	}
	e.ApplySell(x)
}

func priorBasis(avg, prevQty, fillPrice float64) float64 {
	if prevQty == 0 || avg <= 0 {
		return fillPrice
	}
	return avg
}

func (e *Editor) finishRecompute(newQty, newTotal float64) {
	r := e.r
	r.quantity = newQty
	if nearZero(newQty) {
		r.quantity = 0
		r.totalCost = 0
		return
	}
	r.totalCost = newTotal
	avg := newTotal / newQty
	if avg < 0 {
		avg = -avg
	}
	r.averagePrice = avg
}
