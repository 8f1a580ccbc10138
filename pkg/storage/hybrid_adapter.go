package storage

// HybridEngineAdapter exposes a HybridEngine through the uniform Engine
// surface, translating its logical HybridRowID (stable across the WAL-only
// phase and materialization) into the flat RowHandle every engine speaks.
type HybridEngineAdapter struct {
	*HybridEngine
}

func NewHybridEngineAdapter(e *HybridEngine) *HybridEngineAdapter {
	return &HybridEngineAdapter{HybridEngine: e}
}

func (a *HybridEngineAdapter) BeginTransaction() uint64 { return 0 }
func (a *HybridEngineAdapter) Commit(uint64) error      { return nil }

func (a *HybridEngineAdapter) Insert(payload []byte, createLSN uint64) (RowHandle, error) {
	id, err := a.HybridEngine.Insert(payload, createLSN)
	return RowHandle(id), err
}

func (a *HybridEngineAdapter) Update(id RowHandle, payload []byte, deleteLSN, newCreateLSN uint64) (RowHandle, error) {
	if err := a.HybridEngine.Update(HybridRowID(id), payload, deleteLSN, newCreateLSN); err != nil {
		return 0, err
	}
	return id, nil
}

func (a *HybridEngineAdapter) Delete(id RowHandle, deleteLSN uint64) error {
	return a.HybridEngine.Delete(HybridRowID(id), deleteLSN)
}

func (a *HybridEngineAdapter) Read(id RowHandle) ([]byte, error) {
	return a.HybridEngine.Read(HybridRowID(id))
}

func (a *HybridEngineAdapter) Scan(fn func(id RowHandle, payload []byte) error) error {
	return a.HybridEngine.Scan(func(id HybridRowID, payload []byte) error {
		return fn(RowHandle(id), payload)
	})
}
