// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package search provides hybrid retrieval over knowledge base partitions.
//
// The Retriever type implements a multi-stage retrieval algorithm:
//   - Vector search using query embeddings (cosine similarity)
//   - Lexical search using TF-IDF term matching
//   - Min-max score normalization within each ranking
//   - Weighted blending of the two rankings per chunk
//
// The two searches run concurrently and join before merging. When the
// embedding adapter is unavailable the retriever degrades to lexical-only
// results instead of failing, flagged on the returned envelope.
package search
