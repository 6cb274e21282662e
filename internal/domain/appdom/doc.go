// Package appdom models the document an app is built from: a flat table of
// nodes (pages, elements, queries, connections) rooted at a single app node.
//
// Only the parts the server needs are typed. Query nodes name the data
// source they execute against, carry its query object and default params;
// everything else travels in Attributes untouched.
package appdom
