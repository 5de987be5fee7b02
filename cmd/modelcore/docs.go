package main

// General API documentation for swaggo. Run `swag init -g cmd/modelcore/docs.go` to regenerate.
//
// @title           modelcore API
// @version         1.0
// @description     Model lifecycle management and prioritized inference for local AI backends.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
