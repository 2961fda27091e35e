package model

// Account is one node of the account hierarchy. ParentID is 0 for the root.
type Account struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_account_id,omitempty"`
}

// Department maps an account id to its program code and division label.
type Department struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Division string `json:"division"`
}

// Hierarchy is a read-only index of the account tree under one root.
type Hierarchy struct {
	RootID   int64
	accounts map[int64]Account
	order    []int64
}

// NewHierarchy indexes accounts. The root must be among them.
func NewHierarchy(rootID int64, accounts []Account) *Hierarchy {
	h := &Hierarchy{
		RootID:   rootID,
		accounts: make(map[int64]Account, len(accounts)),
	}
	for _, a := range accounts {
		if _, dup := h.accounts[a.ID]; !dup {
			h.order = append(h.order, a.ID)
		}
		h.accounts[a.ID] = a
	}
	return h
}

// Get returns the account with the given id.
func (h *Hierarchy) Get(id int64) (Account, bool) {
	if h == nil {
		return Account{}, false
	}
	a, ok := h.accounts[id]
	return a, ok
}

// Name returns the account name or "" when unknown.
func (h *Hierarchy) Name(id int64) string {
	a, _ := h.Get(id)
	return a.Name
}

// Parent returns the parent of id, if both are known.
func (h *Hierarchy) Parent(id int64) (Account, bool) {
	a, ok := h.Get(id)
	if !ok || a.ParentID == 0 {
		return Account{}, false
	}
	return h.Get(a.ParentID)
}

// TopLevel returns the child of the root that owns id, walking at most two
// levels up. Accounts owned by the root itself or nested deeper are not found.
func (h *Hierarchy) TopLevel(id int64) (Account, bool) {
	a, ok := h.Get(id)
	if !ok || id == h.RootID {
		return Account{}, false
	}
	if a.ParentID == h.RootID {
		return a, true
	}
	parent, ok := h.Parent(id)
	if ok && parent.ParentID == h.RootID {
		return parent, true
	}
	return Account{}, false
}

// Accounts returns every account in insertion order.
func (h *Hierarchy) Accounts() []Account {
	if h == nil {
		return nil
	}
	out := make([]Account, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.accounts[id])
	}
	return out
}

// Len is the number of indexed accounts.
func (h *Hierarchy) Len() int {
	if h == nil {
		return 0
	}
	return len(h.accounts)
}
