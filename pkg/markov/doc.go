/*
Package markov provides the building blocks for training context-window
(order-k Markov) language models from text, and for using the trained models.

Text is split into symbols by a Tokenizer, a fixed-size window slides over the
symbol stream, and an Aggregator counts how often each symbol follows each
context. Aggregators built from separate inputs can be merged in any order,
which lets training run in parallel. Finalize freezes the counts into an
immutable Model that supports prediction, sampling, pruning, merging and
persistence as a JSON or SQLite artifact.
*/
package markov
