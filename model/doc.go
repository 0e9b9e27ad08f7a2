/*
Package model defines the hyper-parameter and model contracts shared by
recommendation models.
*/
package model
