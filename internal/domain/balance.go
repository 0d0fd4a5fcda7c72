package domain

// Balance is a non-negative token amount in micro-units. Credit and Debit
// are its only mutators; the exported field exists for the codec.
type Balance struct {
	Units int64 `cbor:"units" json:"units"`
}

func NewBalance(units int64) (Balance, error) {
	if units < 0 {
		return Balance{}, ErrInvalidAmount.On("amount")
	}
	return Balance{Units: units}, nil
}

func (b Balance) Amount() int64 { return b.Units }

func (b Balance) IsZero() bool { return b.Units == 0 }

func (b *Balance) Credit(amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount.On("amount")
	}
	b.Units += amount
	return nil
}

func (b *Balance) Debit(amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount.On("amount")
	}
	if amount > b.Units {
		return ErrInsufficientBalance.On("amount")
	}
	b.Units -= amount
	return nil
}

// Split moves amount out of b into a new Balance. The two halves always sum
// to the original.
func (b *Balance) Split(amount int64) (Balance, error) {
	if err := b.Debit(amount); err != nil {
		return Balance{}, err
	}
	return Balance{Units: amount}, nil
}

// Join drains other into b.
func (b *Balance) Join(other *Balance) {
	b.Units += other.Units
	other.Units = 0
}
