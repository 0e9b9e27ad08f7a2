/*
Package rbm implements a restricted Boltzmann machine recommender trained by
contrastive divergence.
*/
package rbm
