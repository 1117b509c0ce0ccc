/*
Package mixedmodel estimates the variance components of linear mixed models

	y = X b + e,   Cov(e) = V = s_1 V_1 + ... + s_q V_q,

where the covariance structures V_i are known, by maximum likelihood (ML) or
restricted maximum likelihood (REML).  The fixed effects b are profiled out by
generalized least squares.

Estimation is by Newton-type iterations (Newton-Raphson, Fisher scoring,
average information), expectation maximization, iterated MINQUE, or a
quasi-Newton optimizer, see Fit and Config.  The covariance structures can be
any gonum matrices; diagonal ones are never made dense.

A Model is read-only once created and may be shared between concurrent fits.
*/
package mixedmodel
