// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"sync"
	"time"
)

// waitWithTimeout bloqueia em cond.Wait() mas garante que o esperador
// acorde dentro de d mesmo que nada mais jamais sinalize. sync.Cond não
// tem espera com prazo nativa, então um timer é armado para sinalizar em
// nosso nome; o chamador reavalia seu predicado ao retornar, exatamente
// como em um cond.Wait simples.
func waitWithTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}
